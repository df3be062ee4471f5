// internal/services/besteffort.go
package services

import "github.com/sirupsen/logrus"

// bestEffort runs a non-fatal side effect (photo copy, audit append, email).
// Failure never rolls back the primary state transition; it is logged so
// operators can reconcile out of band.
func bestEffort(op string, fn func() error) {
	if err := fn(); err != nil {
		logrus.WithError(err).WithField("op", op).Warn("best-effort side effect failed")
	}
}
