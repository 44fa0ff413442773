package whisperx

import "strings"

type argList []string

func (a *argList) add(values ...string) { *a = append(*a, values...) }

func (a *argList) when(cond bool, values ...string) {
	if cond {
		a.add(values...)
	}
}

// buildArgs assembles the uvx invocation: package indexes first, then the
// whisperx entry point with its positional source and flags.
func (s *Service) buildArgs(source, outputDir, initialPrompt string) []string {
	cfg := s.cfg
	var args argList

	if cfg.CUDAEnabled {
		args.add("--index-url", cudaIndexURL, "--extra-index-url", PypiIndexURL)
	} else {
		args.add("--index-url", PypiIndexURL)
	}

	args.add("whisperx", source, "--model", cfg.Model, "--output_dir", outputDir)
	for _, kv := range decoderFlags {
		args.add(kv[0], kv[1])
	}
	args.add("--vad_method", cfg.VADMethod)
	args.when(cfg.wantsToken(), "--hf_token", cfg.HFToken)
	args.when(cfg.Diarize, "--diarize")
	prompt := strings.TrimSpace(initialPrompt)
	args.when(prompt != "", "--initial_prompt", prompt)
	args.when(cfg.Language != "", "--language", cfg.Language)

	if cfg.CUDAEnabled {
		args.add("--device", CUDADevice)
	} else {
		args.add("--device", CPUDevice, "--compute_type", cpuComputeType)
	}
	return args
}
