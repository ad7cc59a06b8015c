// Package failure classifies everything that can go wrong while progressing a story into a fixed taxonomy with one
// user-facing message per kind.
package failure

import (
	"context"
	"fmt"
	"github.com/myrjola/talespin/internal/errors"
	"log/slog"
	"net/http"
	"runtime"
)

type Kind int

const (
	Unknown Kind = iota
	Network
	Auth
	Validation
	Server
	InvalidScene
	MissingSession
	InvalidSceneType
	InvalidChoice
)

func (k Kind) String() string {
	switch k {
	case Unknown:
		return "unknown"
	case Network:
		return "network"
	case Auth:
		return "auth"
	case Validation:
		return "validation"
	case Server:
		return "server"
	case InvalidScene:
		return "invalid_scene"
	case MissingSession:
		return "missing_session"
	case InvalidSceneType:
		return "invalid_scene_type"
	case InvalidChoice:
		return "invalid_choice"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is the fixed text shown to the player for failures of this kind.
func (k Kind) Message() string {
	switch k {
	case Network:
		return "Could not reach the story server. Check your connection and try again."
	case Auth:
		return "Your session has expired. Please sign in again."
	case Validation:
		return "The story server rejected the request."
	case Server:
		return "The story server is having trouble. Please try again shortly."
	case InvalidScene:
		return "The story server sent a scene that could not be shown."
	case MissingSession:
		return "There is no story session to continue."
	case InvalidSceneType:
		return "This scene cannot be continued that way."
	case InvalidChoice:
		return "That choice is not available in this scene."
	case Unknown:
		fallthrough
	default:
		return "Something went wrong. Please try again."
	}
}

// Retryable reports whether an operation failing with this kind may succeed when attempted again.
func (k Kind) Retryable() bool {
	return k == Network || k == Server
}

// StatusCoder is implemented by failures that carry a response status code.
type StatusCoder interface {
	StatusCode() int
}

// Classify maps err onto the taxonomy.
//
// Errors raised by this package keep their kind. Otherwise a failure without a status code is a Network failure,
// 401/403 is Auth, 400/422 is Validation and 5xx is Server. Everything else, including cancellation by the caller,
// is Unknown.
func Classify(err error) Kind {
	if err == nil {
		return Unknown
	}
	var structural *Error
	if errors.As(err, &structural) {
		return structural.kind
	}
	if errors.Is(err, context.Canceled) {
		return Unknown
	}
	var coder StatusCoder
	if !errors.As(err, &coder) {
		return Network
	}
	switch status := coder.StatusCode(); {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Auth
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return Validation
	case status >= http.StatusInternalServerError:
		return Server
	default:
		return Unknown
	}
}

// Message returns the user-facing message for err's kind.
func Message(err error) string {
	return Classify(err).Message()
}

// Error is a structural failure detected by the client itself, such as a malformed scene.
type Error struct {
	kind  Kind
	msg   string
	pc    uintptr
	attrs []slog.Attr
}

func newError(kind Kind, msg string, attrs ...slog.Attr) *Error {
	var pcs [1]uintptr
	// Skip runtime.Callers, newError and the exported constructor.
	runtime.Callers(3, pcs[:]) //nolint:mnd // see above
	return &Error{kind: kind, msg: msg, pc: pcs[0], attrs: attrs}
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) Kind() Kind {
	return e.kind
}

// Is matches any other *Error of the same kind so that callers can test against the exported sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.kind == e.kind
}

// LogValue formats the error for useful logging.
func (e *Error) LogValue() slog.Value {
	frames := runtime.CallersFrames([]uintptr{e.pc})
	source, _ := frames.Next()
	attrs := append([]slog.Attr{
		slog.String("message", e.msg),
		slog.String("kind", e.kind.String()),
		slog.String("source", fmt.Sprintf("%s:%d", source.File, source.Line)),
	}, e.attrs...)
	return slog.GroupValue(attrs...)
}

// Sentinels for errors.Is checks. They match any structural error of the same kind.
var (
	ErrInvalidScene     = &Error{kind: InvalidScene, msg: "invalid scene"}         //nolint:exhaustruct // sentinel
	ErrMissingSession   = &Error{kind: MissingSession, msg: "missing session"}     //nolint:exhaustruct // sentinel
	ErrInvalidSceneType = &Error{kind: InvalidSceneType, msg: "invalid scene type"} //nolint:exhaustruct // sentinel
	ErrInvalidChoice    = &Error{kind: InvalidChoice, msg: "invalid choice"}       //nolint:exhaustruct // sentinel
)

func NewInvalidScene() error {
	return newError(InvalidScene, "scene payload failed validation")
}

// NewInvalidSceneType reports an operation that does not fit the current scene's type.
func NewInvalidSceneType(sceneType string) error {
	return newError(InvalidSceneType, fmt.Sprintf("operation not allowed for scene type %q", sceneType),
		slog.String("scene_type", sceneType))
}

func NewMissingSession() error {
	return newError(MissingSession, "game has no session to start from")
}

// NewNoActiveGame reports an advance attempted before a game was created.
func NewNoActiveGame() error {
	return newError(MissingSession, "no active game, session or scene")
}

// NewInvalidChoice reports a selection that the current scene does not offer.
func NewInvalidChoice(selectionID int64) error {
	return newError(InvalidChoice, fmt.Sprintf("selection %d is not offered by the current scene", selectionID),
		slog.Int64("selection_id", selectionID))
}

// HTTPError is a response from the story server that was not successful, or could not be decoded.
type HTTPError struct {
	Status int
	Body   string
	Err    error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("status %d: %s", e.Status, e.Err.Error())
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func (e *HTTPError) StatusCode() int {
	return e.Status
}
