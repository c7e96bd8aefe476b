package objprofile

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type leaf struct {
	A int32
	B int64
}

type pair struct {
	L, R *leaf
}

type ring struct {
	Next *ring
	V    int32
}

type named struct {
	Name string
}

type holder struct {
	V interface{}
}

// JVM32 sizes: leaf 8+4+8, pair 8+4+4, ring 8+4+4
const (
	leafSize = 20
	pairSize = 16
	ringSize = 16
)

func jvm() *Profiler {
	return New(WithLayout(JVM32Layout()))
}

func checkInvariants(t *testing.T, root *Node) {
	t.Helper()
	count := 0
	root.Traverse(nil, VisitorFuncs{Pre: func(n *Node) {
		count++
		require.LessOrEqual(t, n.Size(), root.Size())

		path := n.Path()
		require.Same(t, root, path[0])
		require.Same(t, n, path[len(path)-1])
		require.Equal(t, n.PathLength(), len(path))

		if n.IsShell() {
			require.Nil(t, n.Shell())
			require.Empty(t, n.Children())
			return
		}

		require.GreaterOrEqual(t, n.RefCount(), 1)
		require.NotNil(t, n.Shell())
		require.Contains(t, n.Children(), n.Shell())

		sum := int64(0)
		for i, c := range n.Children() {
			require.Same(t, n, c.Parent())
			if i > 0 {
				require.GreaterOrEqual(t, n.Children()[i-1].Size(), c.Size())
			}
			sum += c.Size()
		}
		require.Equal(t, n.Size(), sum)
	}})
	require.Greater(t, count, 0)
}

func childNamed(t *testing.T, n *Node, name string) *Node {
	t.Helper()
	for _, c := range n.Children() {
		if c.Name() == name {
			return c
		}
	}
	require.Failf(t, "child not found", "%q has no child %q", n.Name(), name)
	return nil
}

func TestProfiler_Nil(t *testing.T) {
	t.Run("Sizeof", func(t *testing.T) {
		size, err := Sizeof(nil)
		require.NoError(t, err)
		require.Zero(t, size)

		size, err = Sizeof((*leaf)(nil))
		require.NoError(t, err)
		require.Zero(t, size)
	})
	t.Run("Profile", func(t *testing.T) {
		_, err := Profile(nil)
		require.ErrorIs(t, err, ErrNilInput)

		_, err = Profile((*leaf)(nil))
		require.ErrorIs(t, err, ErrNilInput)

		var m map[string]int
		_, err = Profile(m)
		require.ErrorIs(t, err, ErrNilInput)
	})
	t.Run("Sizedelta", func(t *testing.T) {
		_, err := Sizedelta(nil, &leaf{})
		require.ErrorIs(t, err, ErrNilInput)

		size, err := Sizedelta(&leaf{}, nil)
		require.NoError(t, err)
		require.Zero(t, size)
	})
}

func TestProfiler_Profile(t *testing.T) {
	t.Run("TwoFields", func(t *testing.T) {
		p := &pair{L: &leaf{A: 1}, R: &leaf{A: 2}}
		root, err := jvm().Profile(p)
		require.NoError(t, err)

		require.Len(t, root.Children(), 3)
		require.Equal(t, int64(pairSize+2*leafSize), root.Size())
		require.Equal(t, int64(pairSize), root.Shell().Size())
		require.Equal(t, KindObjectShell, root.Shell().Kind())
		require.Equal(t, 0, root.Shell().PrimitiveFields())
		require.Equal(t, 2, root.Shell().ReferenceFields())
		require.Nil(t, root.Parent())
		require.Equal(t, RootName, root.Name())
		require.Same(t, p, root.Object().(*pair))

		require.Equal(t, "github.com/rekby/objprofile.pair#L", root.Children()[0].Name())
		require.Equal(t, "github.com/rekby/objprofile.pair#R", root.Children()[1].Name())
		require.Same(t, p.L, root.Children()[0].Object().(*leaf))
		require.Same(t, root.Shell(), root.Children()[2])

		size, err := jvm().Sizeof(p)
		require.NoError(t, err)
		require.Equal(t, root.Size(), size)
		checkInvariants(t, root)
	})

	t.Run("Shared", func(t *testing.T) {
		l := &leaf{}
		root, err := jvm().Profile(&pair{L: l, R: l})
		require.NoError(t, err)

		require.Len(t, root.Children(), 2)
		child := root.Children()[0]
		require.Equal(t, 2, child.RefCount())
		require.Equal(t, int64(leafSize), child.Size())
		require.Equal(t, int64(pairSize+leafSize), root.Size())
		checkInvariants(t, root)
	})

	t.Run("EqualButDistinct", func(t *testing.T) {
		root, err := jvm().Profile(&pair{L: &leaf{A: 3}, R: &leaf{A: 3}})
		require.NoError(t, err)
		require.Len(t, root.Children(), 3)
		require.Equal(t, 1, root.Children()[0].RefCount())
		require.Equal(t, 1, root.Children()[1].RefCount())
	})

	t.Run("Cycle", func(t *testing.T) {
		r := &ring{}
		r.Next = r
		root, err := jvm().Profile(r)
		require.NoError(t, err)
		require.Len(t, root.Children(), 1)
		require.Equal(t, 2, root.RefCount())
		require.Equal(t, int64(ringSize), root.Size())

		a := &ring{V: 1}
		b := &ring{V: 2, Next: a}
		a.Next = b
		root, err = jvm().Profile(a)
		require.NoError(t, err)
		require.Len(t, root.Children(), 2)
		require.Equal(t, int64(2*ringSize), root.Size())
		require.Equal(t, 2, root.RefCount())
		require.Equal(t, 1, childNamed(t, root, "github.com/rekby/objprofile.ring#Next").RefCount())
		checkInvariants(t, root)
	})

	t.Run("Deep", func(t *testing.T) {
		const depth = 100000
		head := &ring{}
		cur := head
		for i := 1; i < depth; i++ {
			cur.Next = &ring{V: int32(i)}
			cur = cur.Next
		}
		root, err := jvm().Profile(head)
		require.NoError(t, err)
		require.Equal(t, int64(depth*ringSize), root.Size())

		visited := 0
		root.Traverse(nil, VisitorFuncs{Pre: func(*Node) { visited++ }})
		require.Equal(t, 2*depth, visited)

		size, err := jvm().Sizeof(head)
		require.NoError(t, err)
		require.Equal(t, root.Size(), size)
	})

	t.Run("Slice", func(t *testing.T) {
		a, b := &leaf{A: 1}, &leaf{A: 2}
		s := []*leaf{a, b, a}
		root, err := jvm().Profile(s)
		require.NoError(t, err)

		require.Equal(t, KindArrayShell, root.Shell().Kind())
		require.Equal(t, 3, root.Shell().Length())
		require.Equal(t, int64(16+3*4), root.Shell().Size())
		require.Equal(t, int64(16+3*4+2*leafSize), root.Size())
		require.Len(t, root.Children(), 3)
		// the 28 byte shell sorts first
		require.Same(t, root.Shell(), root.Children()[0])
		require.Equal(t, "[0]", root.Children()[1].Name())
		require.Equal(t, 2, root.Children()[1].RefCount())
		require.Equal(t, "[1]", root.Children()[2].Name())
		checkInvariants(t, root)
	})

	t.Run("PrimitiveSlice", func(t *testing.T) {
		root, err := jvm().Profile([]int32{1, 2, 3})
		require.NoError(t, err)
		require.Len(t, root.Children(), 1)
		require.Equal(t, int64(16+3*4), root.Size())
		require.Equal(t, "<shell: int32[3]>", root.Shell().Name())
	})

	t.Run("NestedSlices", func(t *testing.T) {
		type grid struct {
			Rows [][]*leaf
		}
		l := &leaf{}
		root, err := jvm().Profile(&grid{Rows: [][]*leaf{{l}, {nil, l}}})
		require.NoError(t, err)

		rows := childNamed(t, root, "github.com/rekby/objprofile.grid#Rows")
		row0 := childNamed(t, rows, "github.com/rekby/objprofile.grid#Rows[0]")
		cell := childNamed(t, row0, "github.com/rekby/objprofile.grid#Rows[0][0]")
		require.Equal(t, 2, cell.RefCount())
		row1 := childNamed(t, rows, "github.com/rekby/objprofile.grid#Rows[1]")
		require.Len(t, row1.Children(), 1)
		require.Equal(t, int64(16+2*4), row1.Size())
		checkInvariants(t, root)
	})

	t.Run("String", func(t *testing.T) {
		root, err := jvm().Profile(&named{Name: strings.Repeat("a", 4)})
		require.NoError(t, err)
		require.Equal(t, int64(8+4+16+4), root.Size())
		require.Equal(t, "github.com/rekby/objprofile.named#Name", root.Children()[0].Name())
		require.Equal(t, "aaaa", root.Children()[0].Object())
	})

	t.Run("Map", func(t *testing.T) {
		l := &leaf{}
		m := map[string]*leaf{"x": l}
		root, err := jvm().Profile(m)
		require.NoError(t, err)

		require.Equal(t, int64(8+1*(4+4)), root.Shell().Size())
		require.Equal(t, int64(16+leafSize+16+1), root.Size())
		require.Len(t, root.Children(), 3)
		require.Equal(t, `["x"]`, root.Children()[0].Name())
		require.Equal(t, `{"x"}`, root.Children()[1].Name())
		checkInvariants(t, root)
	})

	t.Run("MapOrder", func(t *testing.T) {
		m := map[int]*leaf{}
		for i := 0; i < 20; i++ {
			m[i] = &leaf{}
		}
		root, err := jvm().Profile(m)
		require.NoError(t, err)
		// keys are ordered by their formatted form; the shell is the largest child
		require.Same(t, root.Shell(), root.Children()[0])
		require.Equal(t, "[0]", root.Children()[1].Name())
		require.Equal(t, "[1]", root.Children()[2].Name())
		require.Equal(t, "[10]", root.Children()[3].Name())
	})

	t.Run("Interface", func(t *testing.T) {
		root, err := jvm().Profile(&holder{V: &leaf{}})
		require.NoError(t, err)
		require.Equal(t, int64(8+4+leafSize), root.Size())

		root, err = jvm().Profile(&holder{V: leaf{A: 1, B: 2}})
		require.NoError(t, err)
		require.Equal(t, int64(8+4+leafSize), root.Size())
		require.Equal(t, leaf{A: 1, B: 2}, *root.Children()[0].Object().(*leaf))
	})

	t.Run("BoxedRoot", func(t *testing.T) {
		root, err := jvm().Profile(pair{L: &leaf{}})
		require.NoError(t, err)
		require.Equal(t, int64(pairSize+leafSize), root.Size())
	})

	t.Run("UnexportedFields", func(t *testing.T) {
		type private struct {
			p *leaf
			s []int32
			m map[int32]int32
			i interface{}
		}
		l := &leaf{}
		v := &private{p: l, s: []int32{1}, m: map[int32]int32{1: 1}, i: l}
		root, err := jvm().Profile(v)
		require.NoError(t, err)
		require.Len(t, root.Children(), 4)
		for _, c := range root.Children() {
			if c.Object() == nil {
				continue
			}
			if got, ok := c.Object().(*leaf); ok {
				require.Same(t, l, got)
				require.Equal(t, 2, c.RefCount())
			}
		}
		checkInvariants(t, root)
	})

	t.Run("ShortNames", func(t *testing.T) {
		root, err := New(WithLayout(JVM32Layout()), WithShortTypeNames(true)).Profile(&pair{L: &leaf{}})
		require.NoError(t, err)
		require.Equal(t, "pair#L", root.Children()[0].Name())
	})

	t.Run("Unfollowed", func(t *testing.T) {
		_, err := Profile(func() {})
		require.ErrorIs(t, err, ErrNilInput)
	})
}

type mapKey struct {
	id int
}

type keyedLeaves struct {
	m map[mapKey]*leaf
}

func TestProfiler_UnexportedMapKeys(t *testing.T) {
	obj := &keyedLeaves{m: map[mapKey]*leaf{{3}: {}, {1}: {}, {2}: {}}}
	p := New(WithLayout(JVM32Layout()), WithShortTypeNames(true))

	for i := 0; i < 20; i++ {
		root, err := p.Profile(obj)
		require.NoError(t, err)

		var names []string
		for _, c := range childNamed(t, root, "keyedLeaves#m").Children() {
			if !c.IsShell() {
				names = append(names, c.Name())
			}
		}
		require.Equal(t, []string{"keyedLeaves#m[{1}]", "keyedLeaves#m[{2}]", "keyedLeaves#m[{3}]"}, names)
	}

	// maps read from non-addressable values stay read-only
	outer := map[string]keyedLeaves{"x": *obj}
	for i := 0; i < 20; i++ {
		root, err := p.Profile(outer)
		require.NoError(t, err)

		var names []string
		for _, c := range childNamed(t, root, `["x"].m`).Children() {
			if !c.IsShell() {
				names = append(names, c.Name())
			}
		}
		require.Equal(t, []string{`["x"].m[{1}]`, `["x"].m[{2}]`, `["x"].m[{3}]`}, names)
	}
}

func TestProfiler_GoLayout(t *testing.T) {
	type doc struct {
		Title string
		Tags  []string
		Meta  map[string]interface{}
		Next  *doc
	}
	d := &doc{
		Title: "title",
		Tags:  []string{"a", "bb"},
		Meta:  map[string]interface{}{"k": 1.5, "list": []interface{}{"x", true}},
		Next:  &doc{Title: "second"},
	}

	root, err := Profile(d)
	require.NoError(t, err)
	size, err := Sizeof(d)
	require.NoError(t, err)
	require.Equal(t, root.Size(), size)
	require.Greater(t, size, int64(reflect.TypeOf(doc{}).Size()))
	checkInvariants(t, root)
}

type sliceOwner struct {
	S []int32
}

type backingPair struct {
	P, R *sliceOwner
}

type stringPair struct {
	A, B string
}

type arrayView struct {
	Arr *[4]*leaf
	S   []*leaf
}

func TestProfiler_SharedBacking(t *testing.T) {
	full := make([]int32, 100)
	text := strings.Repeat("a", 100)
	arr := &[4]*leaf{{}, {}, {}, {}}
	spare := make([]int32, 1, 10)

	table := []struct {
		name string
		obj  interface{}
		// JVM32 total, 0 to skip
		jvm int64
	}{
		// 16 + 12 + 12 + 16 + 100*4
		{"FullFirst", &backingPair{P: &sliceOwner{S: full}, R: &sliceOwner{S: full[:1]}}, 456},
		{"ResliceFirst", &backingPair{P: &sliceOwner{S: full[:1]}, R: &sliceOwner{S: full}}, 456},
		{"Tail", &backingPair{P: &sliceOwner{S: full}, R: &sliceOwner{S: full[50:]}}, 0},
		// 16 + (16 + 100) + (16 + 1)
		{"Substring", &stringPair{A: text, B: text[:1]}, 149},
		{"SameString", &stringPair{A: text, B: text}, 16 + 116},
		// 16 + (16 + 4*4) + 4*20
		{"ArrayAndSlice", &arrayView{Arr: arr, S: arr[:2]}, 128},
		// 8 + 4 + 16 + 10*4
		{"SpareCapacity", &sliceOwner{S: spare}, 68},
	}

	layouts := map[string]Layout{"JVM32": JVM32Layout(), "Go": GoLayout()}
	for layoutName, layout := range layouts {
		for _, test := range table {
			t.Run(layoutName+"/"+test.name, func(t *testing.T) {
				p := New(WithLayout(layout))
				root, err := p.Profile(test.obj)
				require.NoError(t, err)
				size, err := p.Sizeof(test.obj)
				require.NoError(t, err)
				require.Equal(t, root.Size(), size)
				checkInvariants(t, root)

				if layoutName == "JVM32" && test.jvm != 0 {
					require.Equal(t, test.jvm, size)
				}
			})
		}
	}
}

func TestProfiler_Sizedelta(t *testing.T) {
	p := &pair{L: &leaf{}, R: &leaf{}}

	t.Run("Self", func(t *testing.T) {
		size, err := jvm().Sizedelta(p, p)
		require.NoError(t, err)
		require.Zero(t, size)
	})
	t.Run("Reachable", func(t *testing.T) {
		size, err := jvm().Sizedelta(p, p.R)
		require.NoError(t, err)
		require.Zero(t, size)
	})
	t.Run("Partial", func(t *testing.T) {
		size, err := jvm().Sizedelta(p, &pair{L: p.L, R: &leaf{}})
		require.NoError(t, err)
		require.Equal(t, int64(pairSize+leafSize), size)
	})
	t.Run("Disjoint", func(t *testing.T) {
		other := &pair{L: &leaf{}}
		size, err := jvm().Sizedelta(p, other)
		require.NoError(t, err)
		full, err := jvm().Sizeof(other)
		require.NoError(t, err)
		require.Equal(t, full, size)
	})
}

func TestReadField(t *testing.T) {
	f := &Field{Owner: reflect.TypeOf(leaf{}), Name: "bogus", Type: reflect.TypeOf(0), index: []int{5}}
	_, err := readField(reflect.ValueOf(leaf{}), f)
	require.ErrorIs(t, err, ErrFieldAccess)
	require.Contains(t, err.Error(), "bogus")
	require.Contains(t, err.Error(), "objprofile.leaf")
}

func ExampleProfiler_Profile() {
	type Item struct {
		ID   int32
		Next *Item
	}

	list := &Item{ID: 1, Next: &Item{ID: 2}}
	root, err := New(WithLayout(JVM32Layout()), WithShortTypeNames(true)).Profile(list)
	if err != nil {
		panic(err)
	}
	fmt.Print(root.Dump())

	// Output:
	// 32 (100.0%) <root> : Item
	//   16 (50.0%) <shell: 1 prim/1 ref fields>
	//   16 (50.0%) Item#Next : Item
	//     16 (50.0%) <shell: 1 prim/1 ref fields>
}
