package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SyncService keeps the lifecycle machine and the database consistent. It
// owns every read and write of subscription rows performed on behalf of the
// machine; transition actions call it and never touch stores directly.
type SyncService struct {
	store   Store
	history HistoryStore
	log     *slog.Logger
	now     func() time.Time
}

// SyncOption configures a SyncService.
type SyncOption func(*SyncService)

// WithSyncLogger sets the logger used by the sync service.
func WithSyncLogger(log *slog.Logger) SyncOption {
	return func(s *SyncService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) SyncOption {
	return func(s *SyncService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSyncService creates a sync service over the given stores. It panics if
// either store is nil, as this is a programming error.
func NewSyncService(store Store, history HistoryStore, opts ...SyncOption) *SyncService {
	if store == nil {
		panic("subscription: store is required")
	}
	if history == nil {
		panic("subscription: history store is required")
	}

	s := &SyncService{
		store:   store,
		history: history,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RestoredState is the outcome of loading persisted state on startup.
type RestoredState struct {
	State            State
	Status           *SubscriptionStatus
	LastTransitionAt time.Time
}

// DetermineStateFromSubscription derives the lifecycle state a stored row
// recommends, given the current time. It is a pure function: the stored
// status code decides the branch, and billing and account expiry decide
// whether paid states have lapsed.
func DetermineStateFromSubscription(sub *SubscriptionStatus, now time.Time) State {
	if sub == nil {
		return StateInitial
	}

	switch sub.Status {
	case StatusActive:
		if !sub.BillingExpired(now) {
			return StateActive
		}
		if sub.AccountValid(now) {
			// Billing lapsed but the account window is still open, the
			// grace period applies.
			return StateCancelled
		}
		return StateExpired
	case StatusCancelled:
		// The grace period needs a known expiry; a cancelled row without
		// one must not keep entitlements open forever.
		if !sub.BillingExpiry.IsZero() && !sub.BillingExpired(now) {
			return StateCancelled
		}
		return StateExpired
	case StatusExpired:
		return StateExpired
	case StatusRevoked:
		return StateRevoked
	case StatusPurchased, StatusAckPending:
		return StatePurchasePending
	default:
		return StateInitial
	}
}

// LoadStateFromDatabase reads the current subscription row and derives the
// state the machine should restore to. It returns nil when no row exists,
// meaning the machine starts fresh.
func (s *SyncService) LoadStateFromDatabase(ctx context.Context) (*RestoredState, error) {
	sub, err := s.store.Current(ctx)
	if err != nil {
		if IsNotFoundError(err) {
			s.log.DebugContext(ctx, "no persisted subscription, starting fresh")
			return nil, nil
		}
		return nil, errors.Join(ErrPersistenceFailed, err)
	}

	restored := &RestoredState{
		State:            DetermineStateFromSubscription(sub, s.now()),
		Status:           sub,
		LastTransitionAt: sub.UpdatedAt,
	}
	if rows, err := s.history.BySubscription(ctx, sub.ID); err == nil && len(rows) > 0 {
		restored.LastTransitionAt = rows[0].CreatedAt
	}

	s.log.InfoContext(ctx, "restored subscription state from database",
		slog.String("state", restored.State.Name()),
		slog.Int("status_code", sub.Status),
	)
	return restored, nil
}

// SaveStateTransition persists a completed transition: the status row gets
// the new numeric code and an audit row records the move. A nil data or
// missing row is not an error, there is simply nothing to persist yet. A
// failed audit insert is logged but does not fail the call, restoration
// reads the status row, not the history.
func (s *SyncService) SaveStateTransition(ctx context.Context, from, to State, data *SubscriptionData, reason string) error {
	if data == nil || data.Status == nil {
		s.log.DebugContext(ctx, "no subscription row to persist",
			slog.String("from", from.Name()),
			slog.String("to", to.Name()),
		)
		return nil
	}

	if err := s.store.UpdateStatus(ctx, data.Status.ID, to.StatusCode()); err != nil {
		return errors.Join(ErrPersistenceFailed, err)
	}
	data.Status.Status = to.StatusCode()
	data.UpdatedAt = s.now()

	if _, err := s.history.Insert(ctx, &StateHistory{
		SubscriptionID: data.Status.ID,
		FromStatus:     from.StatusCode(),
		ToStatus:       to.StatusCode(),
		Reason:         reason,
		CreatedAt:      s.now(),
	}); err != nil {
		s.log.WarnContext(ctx, "failed to record transition history",
			slog.String("from", from.Name()),
			slog.String("to", to.Name()),
			slog.Any("error", err),
		)
	}
	return nil
}

// SavePurchaseDetail upserts a purchase by provider token. A second call
// with the same token updates the existing row instead of inserting a
// duplicate.
func (s *SyncService) SavePurchaseDetail(ctx context.Context, detail *PurchaseDetail) (*SubscriptionStatus, error) {
	if detail == nil || detail.PurchaseToken == "" {
		return nil, ErrPurchaseDetailRequired
	}

	existing, err := s.store.ByPurchaseToken(ctx, detail.PurchaseToken)
	if err == nil {
		existing.ProductID = detail.ProductID
		existing.PlanID = detail.PlanID
		if detail.AccountID != "" {
			existing.AccountID = detail.AccountID
		}
		if detail.Payload != "" {
			existing.Payload = detail.Payload
		}
		if !detail.BillingExpiry.IsZero() {
			existing.BillingExpiry = detail.BillingExpiry
		}
		existing.UpdatedAt = s.now()
		if err := s.store.Update(ctx, existing); err != nil {
			return nil, errors.Join(ErrPersistenceFailed, err)
		}
		return existing, nil
	}
	if !IsNotFoundError(err) {
		return nil, errors.Join(ErrPersistenceFailed, err)
	}

	row, err := s.store.Insert(ctx, &SubscriptionStatus{
		AccountID:     detail.AccountID,
		ProductID:     detail.ProductID,
		PlanID:        detail.PlanID,
		PurchaseToken: detail.PurchaseToken,
		Status:        StatusInitiated,
		BillingExpiry: detail.BillingExpiry,
		Payload:       detail.Payload,
		UpdatedAt:     s.now(),
	})
	if err != nil {
		return nil, errors.Join(ErrPersistenceFailed, err)
	}
	return row, nil
}

// UpdateSubscriptionExpiry sets the billing and account expiry of a row.
func (s *SyncService) UpdateSubscriptionExpiry(ctx context.Context, id int64, billing, account time.Time) error {
	if err := s.store.UpdateExpiry(ctx, id, billing, account); err != nil {
		return errors.Join(ErrPersistenceFailed, err)
	}
	return nil
}

// MarkSubscriptionRevoked flags a row as revoked and records why.
func (s *SyncService) MarkSubscriptionRevoked(ctx context.Context, id int64, fromStatus int, reason string) error {
	if err := s.store.UpdateStatus(ctx, id, StatusRevoked); err != nil {
		return errors.Join(ErrPersistenceFailed, err)
	}
	if _, err := s.history.Insert(ctx, &StateHistory{
		SubscriptionID: id,
		FromStatus:     fromStatus,
		ToStatus:       StatusRevoked,
		Reason:         reason,
		CreatedAt:      s.now(),
	}); err != nil {
		s.log.WarnContext(ctx, "failed to record revocation history", slog.Any("error", err))
	}
	return nil
}

// SavePurchaseFailureHistory records a failed purchase attempt against the
// current row, if one exists. With no row yet the failure is log-only.
func (s *SyncService) SavePurchaseFailureHistory(ctx context.Context, from State, reason string) error {
	sub, err := s.store.Current(ctx)
	if err != nil {
		if IsNotFoundError(err) {
			s.log.InfoContext(ctx, "purchase failure with no persisted row",
				slog.String("from", from.Name()),
				slog.String("reason", reason),
			)
			return nil
		}
		return errors.Join(ErrPersistenceFailed, err)
	}

	if _, err := s.history.Insert(ctx, &StateHistory{
		SubscriptionID: sub.ID,
		FromStatus:     from.StatusCode(),
		ToStatus:       StatusError,
		Reason:         reason,
		CreatedAt:      s.now(),
	}); err != nil {
		return errors.Join(ErrPersistenceFailed, err)
	}
	return nil
}

// PerformSystemCheck sweeps the store for rows whose paid time has lapsed
// and marks them expired. It returns how many rows were touched.
func (s *SyncService) PerformSystemCheck(ctx context.Context) (int64, error) {
	count, err := s.store.MarkExpired(ctx, s.now())
	if err != nil {
		return 0, errors.Join(ErrPersistenceFailed, err)
	}
	if count > 0 {
		s.log.InfoContext(ctx, "system check expired lapsed subscriptions", slog.Int64("count", count))
	}
	return count, nil
}

// TransitionReason builds a stable audit reason from an event and an
// optional cause.
func TransitionReason(ev Event) string {
	switch {
	case ev.Reason != "":
		return ev.Reason
	case ev.Err != nil && ev.Result != nil:
		return fmt.Sprintf("%s: %v (code %d)", ev.Kind, ev.Err, ev.Result.Code)
	case ev.Err != nil:
		return fmt.Sprintf("%s: %v", ev.Kind, ev.Err)
	default:
		return string(ev.Kind)
	}
}
