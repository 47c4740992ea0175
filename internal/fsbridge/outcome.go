package fsbridge

// Outcome is the decoded, typed result of one completion. The concrete type
// is fully determined by the operation kind plus the failure sentinel - never
// by inspecting payload contents.
type Outcome interface{ outcome() }

type Unit struct{}

type Int struct{ Value int32 }

type Long struct{ Value int64 }

// Bytes is a read result: the request-owned storage truncated to Count.
type Bytes struct {
	Count	int64
	Data	[]byte
}

type Text struct{ Value string }

type TextList struct{ Names []string }

// Stat mirrors the platform stat payload. The three timestamps are in
// milliseconds.
type Stat struct {
	Dev		uint64
	Ino		uint64
	Mode	uint32
	Nlink	uint64
	Uid		uint32
	Gid		uint32
	Rdev	uint64
	Size	int64
	Blksize	int64
	Blocks	int64
	Atime	int64
	Mtime	int64
	Ctime	int64
}

type Fail struct{ Err *OSError }

func (Unit) outcome()     {}
func (Int) outcome()      {}
func (Long) outcome()     {}
func (Bytes) outcome()    {}
func (Text) outcome()     {}
func (TextList) outcome() {}
func (Stat) outcome()     {}
func (Fail) outcome()     {}
