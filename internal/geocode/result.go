package geocode

// Kind distinguishes the possible outcomes of an upstream call: a usage-limit
// rejection, a timeout, or any other upstream error, each handled and cached
// differently.
type Kind int

const (
	KindOk Kind = iota
	KindUsageLimit
	KindUpstreamError
	KindTimeout
)

// Result is the outcome variant for every external geocode/elevation/
// timezone call. Exactly one of the accessors is meaningful, gated by Kind.
type Result[T any] struct {
	kind    Kind
	value   T
	message string
}

func Ok[T any](value T) Result[T] { return Result[T]{kind: KindOk, value: value} }

func UsageLimit[T any](message string) Result[T] {
	return Result[T]{kind: KindUsageLimit, message: message}
}

func UpstreamError[T any](message string) Result[T] {
	return Result[T]{kind: KindUpstreamError, message: message}
}

func Timeout[T any](message string) Result[T] {
	return Result[T]{kind: KindTimeout, message: message}
}

func (r Result[T]) Kind() Kind { return r.kind }

func (r Result[T]) Message() string { return r.message }

// Value returns the success payload and whether the result is KindOk.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.kind == KindOk
}
