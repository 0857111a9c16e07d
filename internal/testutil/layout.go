package testutil

import (
	"path/filepath"
	"testing"
)

// Library units of the sample harness. solver uses geom which uses main.
const (
	MainUnit = `MODULE main
  ! shared numerics
CONTAINS
  SUBROUTINE formnf(nf)
  END SUBROUTINE formnf
END MODULE main
`
	GeomUnit = `MODULE geom
  USE main
CONTAINS
  SUBROUTINE geom_rect()
  END SUBROUTINE geom_rect
END MODULE geom
`
	SolverUnit = `MODULE solver
  USE main
  USE geom
  USE, INTRINSIC :: iso_fortran_env
END MODULE solver
`
)

// P51Source is a program whose input has three records after the title.
const P51Source = `PROGRAM p51
!-------------------------------------------------------------------------
! Program 5.1 Plane or axisymmetric strain analysis of an elastic solid
!-------------------------------------------------------------------------
 USE main
 USE geom
 IMPLICIT NONE
 INTEGER::nels,nxe,nye
 REAL::e,v
 CHARACTER(LEN=15)::argv
 CALL getname(argv,nlen)
 OPEN(10,FILE=argv(1:nlen)//'.dat')
 OPEN(11,FILE=argv(1:nlen)//'.res')
 READ(10,*)nxe,nye
 nels=nxe*nye
 READ(10,*)e,v
 CALL formnf(nf)
 READ(10,*)loaded_nodes
 WRITE(11,'(A,I5,A)')" There are",neq," equations"
END PROGRAM p51
`

// P51Input is a base case with records [mesh, material(E, nu), loads].
const P51Input = "2 3\n1.0e6   0.3\n1 -1.0\n"

// Harness is a temporary harness root populated with a small library, one
// program and its cases.
type Harness struct {
	Root string
}

// NewHarness lays out:
//
//	library/main/main.f03, library/geom/geom.f03, library/solver.f03
//	source/chap05/p51.f03, source/chap05/p104.f03
//	executable/chap05/{p51_1,p51_2,p104,p99_1}.dat
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	root := t.TempDir()
	h := &Harness{Root: root}

	WriteFile(t, h.Path("library", "main", "main.f03"), MainUnit)
	WriteFile(t, h.Path("library", "geom", "geom.f03"), GeomUnit)
	WriteFile(t, h.Path("library", "solver.f03"), SolverUnit)

	WriteFile(t, h.Path("source", "chap05", "p51.f03"), P51Source)
	WriteFile(t, h.Path("source", "chap05", "p104.f03"), "PROGRAM p104\n READ(10,*)n\nEND PROGRAM p104\n")

	WriteFile(t, h.Path("executable", "chap05", "p51_1.dat"), P51Input)
	WriteFile(t, h.Path("executable", "chap05", "p51_2.dat"), "4 4\n2.0e5 0.25\n2 -5.0\n")
	WriteFile(t, h.Path("executable", "chap05", "p104.dat"), "7\n")
	WriteFile(t, h.Path("executable", "chap05", "p99_1.dat"), "1\n")
	return h
}

// Path joins elements onto the harness root.
func (h *Harness) Path(elem ...string) string {
	return filepath.Join(append([]string{h.Root}, elem...)...)
}
