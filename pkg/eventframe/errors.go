package eventframe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies an Error: optimistic
// concurrency, store/database failures, pool exhaustion, bad wire data,
// and programmer-error configuration mistakes.
type Kind int

const (
	KindOther Kind = iota
	KindWrongExpectedVersion
	KindDatabase
	KindPool
	KindDeserialization
	KindDuplicateHandler
	KindDuplicateProjection
)

func (k Kind) String() string {
	switch k {
	case KindWrongExpectedVersion:
		return "wrong_expected_version"
	case KindDatabase:
		return "database"
	case KindPool:
		return "pool"
	case KindDeserialization:
		return "deserialization"
	case KindDuplicateHandler:
		return "duplicate_handler"
	case KindDuplicateProjection:
		return "duplicate_projection"
	default:
		return "other"
	}
}

// Error is the single error type returned across the store gateway,
// EntityStore, and handler dispatch surfaces: one struct plus a Kind enum,
// flatter than a multi-type error family since every caller here only
// needs to branch on Kind.
type Error struct {
	Kind Kind
	Op   string
	// TypeName is populated for KindDuplicateHandler/KindDuplicateProjection.
	TypeName string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("eventframe: ")
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.TypeName != "" {
		fmt.Fprintf(&b, "(%s)", e.TypeName)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is enables errors.Is(err, ErrWrongExpectedVersion)-style sentinel checks
// based on Kind rather than identity.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

// Sentinel values usable with errors.Is to check an Error's Kind without
// constructing a full Error.
var (
	ErrWrongExpectedVersion = &Error{Kind: KindWrongExpectedVersion}
	ErrDatabase             = &Error{Kind: KindDatabase}
	ErrPool                 = &Error{Kind: KindPool}
	ErrDeserialization      = &Error{Kind: KindDeserialization}
	ErrDuplicateHandler     = &Error{Kind: KindDuplicateHandler}
	ErrDuplicateProjection  = &Error{Kind: KindDuplicateProjection}
)

// IsKind reports whether err is an *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// duplicateHandlerError builds a KindDuplicateHandler Error for the given
// message type name.
func duplicateHandlerError(op, typeName string) error {
	return &Error{Kind: KindDuplicateHandler, Op: op, TypeName: typeName,
		Err: fmt.Errorf("handler for type %q already registered", typeName)}
}

// duplicateProjectionError builds a KindDuplicateProjection Error for the
// given message type name.
func duplicateProjectionError(op, typeName string) error {
	return &Error{Kind: KindDuplicateProjection, Op: op, TypeName: typeName,
		Err: fmt.Errorf("projection for type %q already registered", typeName)}
}

// classifyStoreError turns a raw pgx/database error into a classified
// *Error, matching against the store's "Wrong expected version"
// message text rather than a Postgres error code, since write_message is
// a plain stored procedure whose SQLSTATE the framework doesn't control.
func classifyStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.Contains(pgErr.Message, "Wrong expected version") {
			return &Error{Kind: KindWrongExpectedVersion, Op: op, Err: err}
		}
		return &Error{Kind: KindDatabase, Op: op, Err: err}
	}
	if strings.Contains(err.Error(), "Wrong expected version") {
		return &Error{Kind: KindWrongExpectedVersion, Op: op, Err: err}
	}
	if isPoolError(err) {
		return &Error{Kind: KindPool, Op: op, Err: err}
	}
	return &Error{Kind: KindOther, Op: op, Err: err}
}
