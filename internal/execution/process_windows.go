package execution

import (
	"errors"
	"fmt"
	"os/exec"
)

// configureProcess refuses direct launches: the run line is handed to
// /bin/sh, which Windows does not have.
func configureProcess(*exec.Cmd) error {
	return fmt.Errorf("%w: direct execution needs /bin/sh", errors.ErrUnsupported)
}
