package storage

// Helper function to create a minimal test printer
func newTestPrinter(name, hostname string, position int) *Printer {
	p := NewPrinter(name, hostname, "test-api-key")
	p.Position = position
	return p
}

// Helper function to create a test printer that looks already synced
func newSyncedTestPrinter(name, hostname, remoteID string, position int) *Printer {
	p := newTestPrinter(name, hostname, position)
	p.RemoteID = remoteID
	p.RemotePayload = []byte(`{"record":"` + remoteID + `"}`)
	return p
}
