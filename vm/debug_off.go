//go:build !ymsldebug

package vm

// debugTags enables kind tagging of every stack and heap slot. Build with
// -tags ymsldebug to turn it on.
const debugTags = false
