package vad

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// onnxModel wraps a Silero VAD ONNX session. Grounded on the teacher pack's
// askidmobile-AIWisper/backend/ai/silero_vad.go, which wires the same
// input/state/sr → output/stateN contract against onnxruntime_go.
type onnxModel struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

var onnxInit sync.Once
var onnxInitErr error

// NewONNXModel loads the Silero VAD ONNX model at modelPath. The ONNX
// Runtime shared library is initialized once per process.
func NewONNXModel(modelPath string) (Model, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("vad: model file not found: %w", err)
	}

	onnxInit.Do(func() {
		onnxInitErr = ort.InitializeEnvironment()
	})
	if onnxInitErr != nil {
		return nil, fmt.Errorf("vad: failed to initialize ONNX runtime: %w", onnxInitErr)
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("vad: failed to create ONNX session: %w", err)
	}

	return &onnxModel{session: session}, nil
}

// Predict runs one Silero VAD inference step over input (context + window
// samples already concatenated by the caller) and the current state.
func (m *onnxModel) Predict(input, state []float32, sampleRate int) (float32, []float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return 0, nil, fmt.Errorf("vad: input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	stateCopy := append([]float32(nil), state...)
	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), stateCopy)
	if err != nil {
		return 0, nil, fmt.Errorf("vad: state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(sampleRate)})
	if err != nil {
		return 0, nil, fmt.Errorf("vad: sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := m.session.Run([]ort.Value{inputTensor, stateTensor, srTensor}, outputs); err != nil {
		return 0, nil, fmt.Errorf("vad: inference failed: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok || len(outTensor.GetData()) == 0 {
		return 0, nil, fmt.Errorf("vad: unexpected output tensor shape")
	}
	stateNTensor, ok := outputs[1].(*ort.Tensor[float32])
	if !ok {
		return 0, nil, fmt.Errorf("vad: unexpected state tensor shape")
	}

	prob := outTensor.GetData()[0]
	nextState := append([]float32(nil), stateNTensor.GetData()...)
	return prob, nextState, nil
}
