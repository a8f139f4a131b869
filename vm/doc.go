// Package vm implements the YMSL virtual machine.
//
// This package contains:
//   - Untagged value representation (int, float and object handle kinds)
//   - Instruction encoding, the code builder and label back-patching
//   - Variables, functions and modules with static addressing
//   - Linking of module graphs into an executable
//   - The stack interpreter and its load-time verifier
//   - The binary module image format
package vm
