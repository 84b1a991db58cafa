package handlers

// Build assembles the full Handler Table (spec §4.D), wiring every handler
// family this package implements. candidateMasterKeys are the shipped BB
// master keys the detector trial-decrypts against (spec §4.B).
func Build(candidateMasterKeys [][]byte) *Table {
	t := NewTable()
	registerHandshake(t, candidateMasterKeys)
	registerIdentity(t)
	registerRetarget(t)
	registerContainer(t)
	registerFileCapture(t)
	registerMisc(t)
	return t
}
