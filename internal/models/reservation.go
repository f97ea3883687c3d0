package models

import "fmt"

// Reservation identifies the CloudShell sandbox a command runs for. It is
// read-only context that ends up in the tags of every resource we create.
type Reservation struct {
	ID        string
	Owner     string
	Blueprint string
	Domain    string
}

func (r Reservation) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("reservation id is required")
	}
	return nil
}
