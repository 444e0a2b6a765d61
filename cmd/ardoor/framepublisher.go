package main

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// FrameStore keeps the JPEG encoding of the latest displayed frame for the HTTP sink.
type FrameStore struct {
	mu        sync.RWMutex
	jpeg      []byte
	seq       uint64
	updatedAt time.Time
}

func NewFrameStore() *FrameStore {
	return &FrameStore{}
}

func (s *FrameStore) Put(jpeg []byte, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jpeg = jpeg
	s.seq++
	s.updatedAt = at
}

// Latest returns the latest frame and its sequence number. ok is false until the first Put().
func (s *FrameStore) Latest() (jpeg []byte, seq uint64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.jpeg, s.seq, s.jpeg != nil
}

func (s *FrameStore) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.updatedAt
}

// FramePublisher encodes every frame into the store and passes the frame on unchanged.
type FramePublisher struct {
	*TransformerNode[*Frame]
	store *FrameStore
}

var _ Node = &FramePublisher{}

func NewFramePublisher(name string, inChan <-chan *Frame, store *FrameStore) *FramePublisher {
	fp := &FramePublisher{
		TransformerNode: NewTransformerNode[*Frame](name, inChan),
		store:           store,
	}

	fp.StepFunc(func(frame *Frame) (*Frame, error) {
		if frame == nil {
			return nil, SkipValue
		}

		jpeg, err := encodeJPEG(frame)
		if err != nil {
			_ = frame.Close()
			return nil, err
		}

		fp.store.Put(jpeg, time.Now())
		return frame, nil
	})

	return fp
}

func encodeJPEG(frame *Frame) ([]byte, error) {
	mat := frame.Mat()

	// The encoder reads color images as BGR.
	if frame.Format() == FormatRGBA {
		bgr := gocv.NewMat()
		defer bgr.Close()

		if err := gocv.CvtColor(mat, &bgr, gocv.ColorRGBAToBGR); err != nil {
			return nil, errors.Wrap(err, "failed to convert frame for encoding")
		}
		mat = bgr
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode frame")
	}
	defer buf.Close()

	// The native buffer is released above; keep a Go copy.
	data := buf.GetBytes()
	jpeg := make([]byte, len(data))
	copy(jpeg, data)

	return jpeg, nil
}
