package repositories

// AudioStore persists received audio clips
type AudioStore interface {
	// Save writes data under name and returns the path it was stored at
	Save(data []byte, name string) (string, error)
}
