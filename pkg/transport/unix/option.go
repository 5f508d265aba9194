package unix

import "github.com/lthibault/peerwire/pkg/transport/generic"

// Option for Unix transport
type Option func(*Transport) (prev Option)

// OptKeepStale leaves existing socket files in place, so that Listen fails
// with "address already in use" instead of reclaiming the path.
func OptKeepStale(keep bool) Option {
	return func(t *Transport) (prev Option) {
		prev = OptKeepStale(t.keepStale)
		t.keepStale = keep
		return
	}
}

// OptGeneric sets an option on the underlying generic transport
func OptGeneric(opt generic.Option) Option {
	return func(t *Transport) Option {
		return OptGeneric(opt(&t.Transport))
	}
}
