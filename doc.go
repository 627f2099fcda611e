// Package binaural renders a mono or stereo signal as a binaural 3D source
// using measured head-related impulse responses (HRIRs).
//
// A [Processor] takes azimuth, elevation and width controls and a directory
// of IR files. When the directory holds IRs for the processing sample rate,
// each ear is convolved with the IR nearest to its virtual source position.
// Without IRs the processor falls back to an equal-power stereo panning law
// with loudness compensation.
//
// # Quick Start
//
//	p, err := binaural.New(&binaural.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	p.SetLibraryRoot("/path/to/hrir")
//	if err := p.Prepare(48000, 512); err != nil {
//	    log.Fatal(err)
//	}
//
//	p.SetParameter(binaural.ParamAzimuth, 90)
//	p.SetParameter(binaural.ParamWidth, 25)
//
//	// Called from the audio thread once per block.
//	err = p.Process(dst, src)
//
// # IR Libraries
//
// A library root contains one sub-directory per sample-rate band:
//
//	root/44K_16bit/   rates up to 44.1 kHz
//	root/48K_24bit/   rates up to 48 kHz
//	root/96K_24bit/   higher rates
//
// Each band holds WAV files named azi_<deg>_ele_<deg>*.wav. Missing
// directories, unreadable files and unparsable names never fail a load;
// they only shrink the library, and an empty library selects the panning
// fallback. [Processor.Status] reports which case applies.
//
// # Real-Time Behaviour
//
// [Processor.Process] never allocates, locks or touches the filesystem.
// Libraries are loaded and their kernels prepared (resampled, trimmed,
// normalised, transformed) on a background goroutine, then published as an
// immutable snapshot. A newer request always supersedes an older one.
//
// Kernel swaps are crossfaded over one convolution partition. While a
// library is loaded the output is delayed by [Config.PartitionSize]
// samples; [Config.OnLatencyChange] reports every change.
//
// # Thread Safety
//
// Process and Prepare must be called from one goroutine (the audio
// thread). SetParameter, SetLibraryRoot, ClearLibrary, Status and the state
// methods may be called from any goroutine.
package binaural
