package commands

// TurnRunning reports whether a REPL turn is in flight.
func TurnRunning() bool { return turns.Load() > 0 }
