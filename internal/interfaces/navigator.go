package interfaces

//go:generate mockgen -package=mock -source=navigator.go -destination=mock/navigator.go

// Navigator receives programmatic navigation intents
type Navigator interface {
	// Navigate moves to path. Relative paths are resolved against the current location.
	Navigate(path string)
}
