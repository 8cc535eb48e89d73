/*
Package tensorc is a compiler from high-level tensor programs to ciphertext
programs for CKKS-style leveled homomorphic encryption. The library features:

  - A shared-node dataflow IR with cross-pass provenance tracking.
  - A layout system mapping tensor indices to (ciphertext, slot) pairs, with
    automatic layout conversion through masked rotations.
  - Waterline rescaling, dynamic-programming bootstrap placement and
    bootstrap pruning.
  - Expansion of tensor operators into scalar ciphertext operators, producing
    a portable textual ciphertext program that any compatible evaluator can
    consume.

The compiler emits levels, scales and plaintext masks for every ciphertext
operand; it does not encrypt, decrypt or evaluate. Those operations belong to
the backend consuming the emitted program.
*/
package tensorc
