package b2

import (
	"context"
	"time"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/hash"
)

// objectInfo describes an upload to rclone. The B2 backend only needs the
// name, size and modification time.
type objectInfo struct {
	remote  string
	modTime time.Time
	size    int64
}

var _ fs.ObjectInfo = objectInfo{}

func newObjectInfo(remote string, modTime time.Time, size int64) objectInfo {
	return objectInfo{remote: remote, modTime: modTime, size: size}
}

func (o objectInfo) String() string { return o.remote }
func (o objectInfo) Remote() string { return o.remote }
func (o objectInfo) ModTime(context.Context) time.Time { return o.modTime }
func (o objectInfo) Size() int64 { return o.size }
func (o objectInfo) Fs() fs.Info { return sourceInfo{} }
func (o objectInfo) Hash(context.Context, hash.Type) (string, error) { return "", nil }
func (o objectInfo) Storable() bool { return true }

// sourceInfo stands in for the filesystem an upload comes from.
type sourceInfo struct{}

var _ fs.Info = sourceInfo{}

func (sourceInfo) Name() string { return "audit" }
func (sourceInfo) Root() string { return "/" }
func (sourceInfo) String() string { return "audit" }
func (sourceInfo) Precision() time.Duration { return time.Second }
func (sourceInfo) Hashes() hash.Set { return hash.Set(hash.None) }
func (sourceInfo) Features() *fs.Features { return &fs.Features{} }
