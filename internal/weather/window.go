package weather

// Window keeps the observations that fall on day in the series timezone.
// When startHour is set only hours strictly after it are kept.
func Window(s Series, day Date, startHour *int) Series {
	zone := s.Zone()
	out := make([]Observation, 0, len(s.Observations))
	for _, o := range s.Observations {
		local := o.Time.In(zone)
		if DateOf(local) != day {
			continue
		}
		if startHour != nil && local.Hour() <= *startHour {
			continue
		}
		out = append(out, o)
	}
	return s.derive(out)
}
