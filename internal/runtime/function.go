package runtime

import (
	log "github.com/sirupsen/logrus"
)

// IgnoreError marks a call as declared best-effort: the result is logged
// and the caller continues.
func IgnoreError(err error) {
	if err != nil {
		log.Tracef("[IgnoreError] %v", err)
	}
}

// Guard runs f and swallows panics so that one message's handling can never
// take down a consumer loop.
func Guard(tag string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[%s] recovered panic: %v", tag, r)
		}
	}()
	f()
}
