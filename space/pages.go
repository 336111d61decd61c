package space

// ReservedPages exposes each policy's page resource's reservation count so
// Plan.PagesReserved can sum across the spaces it owns without needing a
// PageResource-typed field of its own.

func (s *CopySpace) ReservedPages() int        { return s.pr.ReservedPages() }
func (s *ImmortalSpace) ReservedPages() int    { return s.pr.ReservedPages() }
func (s *LargeObjectSpace) ReservedPages() int { return s.pr.ReservedPages() }
func (s *MarkSweepSpace) ReservedPages() int   { return s.pr.ReservedPages() }
func (s *ImmixSpace) ReservedPages() int       { return s.pr.ReservedPages() }
func (s *MarkCompactSpace) ReservedPages() int { return s.pr.ReservedPages() }
func (s *CompressorSpace) ReservedPages() int  { return s.pr.ReservedPages() }
