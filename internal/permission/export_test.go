package permission

// TrackedKeys returns how many draft keys hold a load ticket.
func TrackedKeys(s *Service) int { return s.seq.Len() }
