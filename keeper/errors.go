package keeper

import (
	"errors"
	"fmt"

	"github.com/heirloom-kv/heirloom/process"
	"github.com/heirloom-kv/heirloom/resource"
)

var (
	// ErrInvalidArguments indicates a malformed name or option set.
	// Creation fails fast with this error and never leaves partial
	// state behind.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// AlreadyStartedError indicates a naming clash: a store with the
// requested name already exists. It carries the existing store's
// handles so a caller can simply use them, making repeated creation
// calls for the same logical store idempotent.
type AlreadyStartedError struct {
	Name   string
	Owner  process.ID
	Handle resource.Handle
}

// Error implements error.Error
func (err *AlreadyStartedError) Error() string {
	return fmt.Sprintf("store %q already started with owner %s", err.Name, err.Owner)
}
