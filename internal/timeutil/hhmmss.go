// Package timeutil implements the HHMMSS <-> seconds-of-day encoding used
// throughout the CLI, CSVs and logs (§6).
package timeutil

// Encode converts seconds-of-day to the HHMMSS integer encoding.
func Encode(secondsOfDay int) int {
	h := secondsOfDay / 3600
	m := (secondsOfDay / 60) % 60
	s := secondsOfDay % 60
	return 10000*h + 100*m + s
}

// Decode converts an HHMMSS integer to seconds-of-day.
func Decode(hhmmss int) int {
	h := hhmmss / 10000
	m := (hhmmss / 100) % 100
	s := hhmmss % 100
	return h*3600 + m*60 + s
}
