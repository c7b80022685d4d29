// Package wakeword implements the three-stage openWakeWord-style detection
// pipeline: mel filterbank (FeatureExtractor) → embedding (EmbeddingWindow)
// → keyword classifier (Classifier), plus a Debouncer that turns a stream
// of confidences into discrete detection events.
//
// Each stage is invoked single-threaded from the capture/detection thread;
// none of these types are safe for concurrent use from multiple goroutines.
package wakeword

import (
	"fmt"

	"github.com/hammamikhairi/ottocook/internal/domain"
	ort "github.com/yalue/onnxruntime_go"
)

// FeatureExtractor wraps the stage-1 mel filterbank model. One Extract call
// consumes exactly one domain.AudioFrame and produces exactly
// domain.MelFramesPerAudioFrame domain.MelFrame values; it never buffers
// audio itself.
type FeatureExtractor struct {
	session *ort.AdvancedSession
	in      *ort.Tensor[float32]
	out     *ort.Tensor[float32]
}

// NewFeatureExtractor loads the stage-1 model from modelPath. The caller
// must have already called ort.InitializeEnvironment.
func NewFeatureExtractor(modelPath string) (*FeatureExtractor, error) {
	in, err := ort.NewEmptyTensor[float32](ort.NewShape(1, domain.FrameSamples))
	if err != nil {
		return nil, fmt.Errorf("%w: melspec input tensor: %v", domain.ErrModelLoadError, err)
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, domain.MelFramesPerAudioFrame, domain.MelBins))
	if err != nil {
		in.Destroy()
		return nil, fmt.Errorf("%w: melspec output tensor: %v", domain.ErrModelLoadError, err)
	}

	inInfo, outInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("%w: melspec io info: %v", domain.ErrModelLoadError, err)
	}

	sess, err := ort.NewAdvancedSession(modelPath,
		[]string{inInfo[0].Name}, []string{outInfo[0].Name},
		[]ort.Value{in}, []ort.Value{out}, nil)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("%w: melspec session: %v", domain.ErrModelLoadError, err)
	}

	return &FeatureExtractor{session: sess, in: in, out: out}, nil
}

// melspecScale and melspecShift bring the stage-1 model's raw output into
// the range the stage-2 embedding model was trained on. The openWakeWord
// melspectrogram artifacts emit values on their own internal scale; every
// known working deployment of these artifacts rescales by /10.0 + 2.0
// before handing mel frames to the embedding stage.
const (
	melspecScale = 10.0
	melspecShift = 2.0
)

// Extract feeds the frame's samples to the stage-1 model at their native
// int16 scale (the melspectrogram artifact expects raw PCM16-range floats,
// not samples normalized to [-1, 1]), rescales the output by melspecScale
// and melspecShift, and appends exactly domain.MelFramesPerAudioFrame mel
// frames to dst, returning the extended slice.
func (f *FeatureExtractor) Extract(frame *domain.AudioFrame, dst []domain.MelFrame) ([]domain.MelFrame, error) {
	inData := f.in.GetData()
	for i, s := range frame.Samples {
		inData[i] = float32(s)
	}

	if err := f.session.Run(); err != nil {
		return dst, fmt.Errorf("%w: melspec run: %v", domain.ErrModelInferenceError, err)
	}

	outData := f.out.GetData()
	for mf := 0; mf < domain.MelFramesPerAudioFrame; mf++ {
		var frame domain.MelFrame
		for b := 0; b < domain.MelBins; b++ {
			frame[b] = outData[mf*domain.MelBins+b]/melspecScale + melspecShift
		}
		dst = append(dst, frame)
	}
	return dst, nil
}

// Close releases the ONNX session and tensors.
func (f *FeatureExtractor) Close() {
	f.session.Destroy()
	f.in.Destroy()
	f.out.Destroy()
}
