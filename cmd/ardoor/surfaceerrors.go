package main

// DrainErrors polls next until it reports no error and logs every error it got. It only empties the queue;
// nothing is retried or recovered.
func DrainErrors(tag string, prompt string, next func() error) int {
	drained := 0
	for err := next(); err != nil; err = next() {
		logger.WithField("tag", tag).Errorf("%s: surface error: %v", prompt, err)
		drained++
	}

	return drained
}

// surfaceErrorQueue collects errors raised while rendering until they are drained.
type surfaceErrorQueue struct {
	pending []error
}

func (q *surfaceErrorQueue) push(err error) {
	if err == nil {
		return
	}

	q.pending = append(q.pending, err)
}

func (q *surfaceErrorQueue) next() error {
	if len(q.pending) == 0 {
		return nil
	}

	err := q.pending[0]
	q.pending = q.pending[1:]
	return err
}
