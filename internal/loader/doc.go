// Package loader reads and writes model weights in the SafeTensors format.
//
// SafeTensors format:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw bytes]
//
// Files may additionally be zstd-compressed as a whole; the reader detects
// the zstd frame magic and decompresses transparently. Floating point tensors
// (F32, F16, BF16, F64) are converted to float32 on load. Integer tensors are
// not weights (PyTorch stores BatchNorm's num_batches_tracked as I64) and are
// skipped by StateDict.
package loader
