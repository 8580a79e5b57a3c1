// Package wire holds the JSON payloads exchanged with out-of-process engines.
package wire

import "github.com/book-expert/voice-clone-service/internal/core"

// SynthesisRequest is the body written to an engine process or sidecar.
type SynthesisRequest struct {
	RefWavPath        string  `json:"ref_wav_path"`
	PromptText        string  `json:"prompt_text"`
	PromptLanguage    string  `json:"prompt_language"`
	Text              string  `json:"text"`
	TextLanguage      string  `json:"text_language"`
	TopP              float64 `json:"top_p"`
	Temperature       float64 `json:"temperature"`
	GPTWeightsPath    string  `json:"gpt_weights_path,omitempty"`
	SoVITSWeightsPath string  `json:"sovits_weights_path,omitempty"`
}

// WeightsRequest asks a sidecar to switch checkpoints.
type WeightsRequest struct {
	GPTWeightsPath    string `json:"gpt_weights_path"`
	SoVITSWeightsPath string `json:"sovits_weights_path"`
}

// NewSynthesisRequest flattens params and the currently loaded weights.
func NewSynthesisRequest(params core.SynthesisParams, weights core.WeightSet) SynthesisRequest {
	return SynthesisRequest{
		RefWavPath:        params.RefAudioPath,
		PromptText:        params.PromptText,
		PromptLanguage:    params.PromptLanguage,
		Text:              params.Text,
		TextLanguage:      params.TextLanguage,
		TopP:              params.TopP,
		Temperature:       params.Temperature,
		GPTWeightsPath:    weights.GPTPath,
		SoVITSWeightsPath: weights.SoVITSPath,
	}
}

// NewWeightsRequest converts a weight set.
func NewWeightsRequest(weights core.WeightSet) WeightsRequest {
	return WeightsRequest{GPTWeightsPath: weights.GPTPath, SoVITSWeightsPath: weights.SoVITSPath}
}
