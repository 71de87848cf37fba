package lsm

import "errors"

// Error kinds for the version/compaction core, per spec §7. Callers use
// errors.Is against these sentinels rather than switching on a bespoke
// status-code type.
var (
	ErrNotFound        = errors.New("lsmdb/lsm: not found")
	ErrCorruption      = errors.New("lsmdb/lsm: corruption")
	ErrInvalidArgument = errors.New("lsmdb/lsm: invalid argument")
	ErrIOError         = errors.New("lsmdb/lsm: io error")
)
