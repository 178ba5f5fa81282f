package mesh

import "github.com/dkeye/Huddle/internal/domain"

const (
	fingerprintPrefix   = 50
	defaultOfferLogSize = 512
)

func fingerprint(from domain.UserID, sdp string) string {
	return string(from) + "-" + sdp[:min(len(sdp), fingerprintPrefix)]
}

// offerLog remembers the fingerprints of offers already handled during one
// call. Oldest entries are evicted once size is reached.
type offerLog struct {
	size  int
	seen  map[string]struct{}
	order []string
}

func newOfferLog(size int) *offerLog {
	if size <= 0 {
		size = defaultOfferLogSize
	}
	return &offerLog{size: size, seen: make(map[string]struct{}, size)}
}

func (l *offerLog) has(fp string) bool {
	_, ok := l.seen[fp]
	return ok
}

// record returns false if fp was already recorded.
func (l *offerLog) record(fp string) bool {
	if _, ok := l.seen[fp]; ok {
		return false
	}
	if len(l.order) >= l.size {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.seen, oldest)
	}
	l.seen[fp] = struct{}{}
	l.order = append(l.order, fp)
	return true
}

func (l *offerLog) reset() {
	l.seen = make(map[string]struct{}, l.size)
	l.order = nil
}

func (l *offerLog) len() int {
	return len(l.order)
}
