package timeline

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why an operation was refused. Kinds are stable and are
// reported to clients by name.
type Kind int

const (
	KindUnknown Kind = iota
	KindRequestBodyEmpty
	KindUnauthenticated
	KindUnauthorizedUser
	KindCollectionNotFound
	KindParentTimelineNotFound
	KindTimelineNotFound
	KindTimelineRangeInvalid
	KindExhibitNotFound
	KindParentExhibitNotFound
	KindContentItemNotFound
	KindCollectionIdMismatch
	KindUserNotFound
	KindSandboxSuperCollectionNotFound
	KindSuperCollectionNotFound
	KindTourNotFound
)

var kindNames = map[Kind]string{
	KindUnknown:                        "Unknown",
	KindRequestBodyEmpty:               "RequestBodyEmpty",
	KindUnauthenticated:                "Unauthenticated",
	KindUnauthorizedUser:               "UnauthorizedUser",
	KindCollectionNotFound:             "CollectionNotFound",
	KindParentTimelineNotFound:         "ParentTimelineNotFound",
	KindTimelineNotFound:               "TimelineNotFound",
	KindTimelineRangeInvalid:           "TimelineRangeInvalid",
	KindExhibitNotFound:                "ExhibitNotFound",
	KindParentExhibitNotFound:          "ParentExhibitNotFound",
	KindContentItemNotFound:            "ContentItemNotFound",
	KindCollectionIdMismatch:           "CollectionIdMismatch",
	KindUserNotFound:                   "UserNotFound",
	KindSandboxSuperCollectionNotFound: "SandboxSuperCollectionNotFound",
	KindSuperCollectionNotFound:        "SuperCollectionNotFound",
	KindTourNotFound:                   "TourNotFound",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// HTTPStatus maps a kind to the status the API answers with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindRequestBodyEmpty:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindUnauthorizedUser:
		return http.StatusForbidden
	case KindCollectionNotFound, KindParentTimelineNotFound, KindTimelineNotFound,
		KindExhibitNotFound, KindParentExhibitNotFound, KindContentItemNotFound,
		KindUserNotFound, KindSandboxSuperCollectionNotFound, KindSuperCollectionNotFound,
		KindTourNotFound:
		return http.StatusNotFound
	case KindTimelineRangeInvalid:
		return http.StatusUnprocessableEntity
	case KindCollectionIdMismatch:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a refused operation. Nothing was written when it is returned.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind carried by err, or KindUnknown for store and
// other internal failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
