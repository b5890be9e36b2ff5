// Package setting exposes the registration policy consumed by the identity core.
package setting
