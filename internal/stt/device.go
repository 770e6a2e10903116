package stt

import (
	"context"
	"os/exec"
	"time"
)

// DeviceProbe reports whether a CUDA device is available
type DeviceProbe func(ctx context.Context) bool

// nvidiaSMIProbe lists GPUs with nvidia-smi
func nvidiaSMIProbe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "nvidia-smi", "-L").Run() == nil
}

// resolveDevice maps "auto" onto cuda or cpu and picks the matching compute type
func resolveDevice(setting string, cudaAvailable bool) (device, computeType string) {
	device = setting
	if device == "" || device == "auto" {
		device = "cpu"
		if cudaAvailable {
			device = "cuda"
		}
	}
	computeType = "int8"
	if device == "cuda" {
		computeType = "float16"
	}
	return device, computeType
}
