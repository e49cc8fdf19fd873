package crypto

// Zero wipes key material from a byte slice. Works on every platform;
// mlock is provided per-OS via build tags.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
