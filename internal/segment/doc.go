// Package segment turns a stream of VAD-classified audio frames into
// discrete utterances bounded by sustained silence.
package segment
