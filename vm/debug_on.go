//go:build ymsldebug

package vm

const debugTags = true
