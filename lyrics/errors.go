package lyrics

import "errors"

// Stages of a single source walk, used in SourceError.
const (
	StageSearch = "search"
	StageLink   = "link"
	StagePage   = "page"
	StageBody   = "body"
)

// ErrUnknownSource is returned when a source name matches no configured source.
var ErrUnknownSource = errors.New("unknown lyric source")

var (
	errNoResultLink = errors.New("no result link matched")
	errEmptyBody    = errors.New("lyrics selector matched nothing")
)

// SourceError explains why one source in the waterfall yielded nothing.
type SourceError struct {
	Source string
	Stage  string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return e.Source + ": " + e.Stage + ": " + e.Err.Error()
	}
	return e.Source + ": " + e.Stage
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func newSourceError(source, stage string, err error) *SourceError {
	return &SourceError{Source: source, Stage: stage, Err: err}
}
