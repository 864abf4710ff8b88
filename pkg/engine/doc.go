// Package engine turns a task description into working Python code.
//
// A Session owns one sandbox environment and runs the pipeline for a task:
// documentation retrieval, planning, dependency resolution and install,
// code generation, and the self-healing loop of the Healer. The Engine
// implements transport.TaskRunner: it builds a fresh Session per task,
// streams progress messages, and records the task log in a RunStore.
package engine
