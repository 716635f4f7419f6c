// Package agent is the language-model side of finpal: a tool-calling chat
// loop against an OpenAI-compatible endpoint (Gemini by default).
//
// The agent never talks to providers directly. It sees a Toolbox, which
// the orchestrator satisfies, and a History for per-session turns.
package agent
