// Package generation defines the boundary between the application core and
// external language-model services. Digesters depend on the TextService
// interface; the gemini subpackage provides the production implementation.
package generation
