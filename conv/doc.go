// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package conv is the public interface for running a 2-D NCHW convolution
// under a tuned schedule.
//
// A Workload fixes the convolution's shapes. A Schedule fixes how it is tiled:
// channel block sizes, the spatial tile, the register tile, unroll flags, the
// split factors of the packing stages, and the output layout. Compile checks
// that every block divides its dimension and binds the two into a
// CompiledKernel, which packs the raw inputs, convolves, and unpacks.
//
// Schedules are usually read from a search report:
//
//	w, _ := conv.Preset("resnet18-stage1")
//	s, _ := conv.ParseSchedule("Schedule(vec_h=7, vec_w=14, vec_c=8, ic_bn=16, oc_bn=16, reg_n=14, unroll=true, unroll_kw=false, ba=1, bc=1, layout_out=NCHW)")
//	k, err := conv.Compile(w, s)
//	if err != nil {
//	    log.Fatal(err) // conv.ErrIncompatible for schedules w cannot use
//	}
//	out, err := k.Run(ctx, data, kernel)
package conv
