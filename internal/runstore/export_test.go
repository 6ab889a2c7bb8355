package runstore

// ExecRaw runs a raw statement against the store's database, for tests
// that need to manipulate state directly.
func ExecRaw(s *Store, query string) error {
	_, err := s.db.Exec(query)
	return err
}
