// Package list implements the intrusive doubly-linked circular list used
// throughout the kernel for ready queues, wait lists and timer wheel slots.
//
// A Node is embedded by value in the owning struct (Task, Timer, ...); the
// list itself never allocates and never owns the entries it links, mirroring
// the upstream kernel's CDLL_Node convention: lists store no owning
// reference, only prev/next pointers, and the Value field is a back-pointer
// set once at construction time so a Node can be mapped back to its owner
// during a list walk without a type switch at every call site.
package list

// Node is one link in an intrusive doubly-linked circular list.
// The zero Node is an empty, unlinked node whose Prev/Next point to itself
// once Init is called.
type Node struct {
	Prev, Next *Node
	// Value is the owning entry, set once by whoever embeds the Node.
	Value any
}

// Init makes n a singleton circular list (an empty list header, or a
// freshly constructed entry not yet linked anywhere).
func (n *Node) Init() {
	n.Prev = n
	n.Next = n
}

// Empty reports whether n (used as a list header) has no linked entries.
func (n *Node) Empty() bool {
	return n.Next == n || n.Next == nil
}

// Linked reports whether n is currently linked into some list other than
// itself.
func (n *Node) Linked() bool {
	return n.Next != nil && n.Next != n
}

// AddTail links entry immediately before the header n (i.e. at the tail of
// the list headed by n), giving FIFO order when Head/PopHead is used to
// consume the list.
func AddTail(header, entry *Node) {
	entry.Prev = header.Prev
	entry.Next = header
	header.Prev.Next = entry
	header.Prev = entry
}

// AddHead links entry immediately after the header n (i.e. at the head of
// the list headed by n).
func AddHead(header, entry *Node) {
	entry.Next = header.Next
	entry.Prev = header
	header.Next.Prev = entry
	header.Next = entry
}

// Remove unlinks entry from whatever list it is currently part of and
// reinitializes it as a singleton. Removing an already-unlinked node is a
// no-op.
func Remove(entry *Node) {
	if entry.Next == nil || entry.Next == entry {
		return
	}
	entry.Prev.Next = entry.Next
	entry.Next.Prev = entry.Prev
	entry.Init()
}

// Head returns the first entry linked after header, or nil if the list
// headed by header is empty.
func Head(header *Node) *Node {
	if header.Empty() {
		return nil
	}
	return header.Next
}

// PopHead removes and returns the first entry linked after header, or nil
// if the list is empty.
func PopHead(header *Node) *Node {
	n := Head(header)
	if n != nil {
		Remove(n)
	}
	return n
}

// Walk invokes fn for every entry in the list headed by header, in order
// from head to tail. fn must not unlink nodes other than the current one;
// walking tolerates the current node being removed by fn (matching the
// upstream kernel's requirement that firing/notify loops survive the
// callback cancelling or restarting the very entry being visited).
func Walk(header *Node, fn func(entry *Node)) {
	n := header.Next
	for n != nil && n != header {
		next := n.Next
		fn(n)
		n = next
	}
}
