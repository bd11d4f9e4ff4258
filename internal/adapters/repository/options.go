package repository

// Option applies a configuration option to the GormStore.
type Option func(*GormStore)

// WithAutoMigrate runs Migrate when the store is constructed.
func WithAutoMigrate(enabled bool) Option {
	return func(s *GormStore) {
		s.autoMigrate = enabled
	}
}
