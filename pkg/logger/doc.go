// Package logger builds configured log/slog loggers with sane defaults and
// automatic context attribute injection.
//
// The factory defaults to JSON output at INFO level; WithDevelopment and
// WithProduction presets flip the usual knobs in one call. Context
// extractors let request- or machine-scoped values (account IDs, purchase
// tokens) appear on every record without threading them manually:
//
//	log := logger.New(
//	    logger.WithProduction("substate"),
//	    logger.WithContextValue("account_id", accountIDKey{}),
//	)
//
// The attr helpers (Error, State, Event, Transition, Component) keep
// attribute keys consistent across packages.
package logger
