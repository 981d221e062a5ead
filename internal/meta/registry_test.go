package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(validPersonType()))

	et, ok := r.EntityType("persons")
	require.True(t, ok)
	assert.Equal(t, "persons", et.ID)

	_, ok = r.EntityType("ghosts")
	assert.False(t, ok)
}

func TestRegistry_RegisterRejectsInvalid(t *testing.T) {
	r := NewRegistry()
	et := NewEntityType("broken")
	et.AddAttribute(NewAttribute("name", TypeString))

	err := r.Register(et)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required ID attribute")
	_, ok := r.EntityType("broken")
	assert.False(t, ok)
}

func TestRegistry_RegisterRelaxedSkipsValidation(t *testing.T) {
	r := NewRegistry()
	et := NewEntityType("broken")
	et.AddAttribute(NewAttribute("name", TypeString))

	require.NoError(t, r.RegisterRelaxed(et))
	_, ok := r.EntityType("broken")
	assert.True(t, ok)
}

func TestRegistry_GenerationBumpsOnEveryMutation(t *testing.T) {
	r := NewRegistry()
	g0 := r.Generation()

	require.NoError(t, r.Register(validPersonType()))
	g1 := r.Generation()
	assert.Greater(t, g1, g0)

	r.Remove("persons")
	assert.Greater(t, r.Generation(), g1)
}

func TestRegistry_EntityTypeIDsSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"zebras", "apples", "mangos"} {
		et := validPersonType()
		et.ID = id
		require.NoError(t, r.Register(et))
	}
	assert.Equal(t, []string{"apples", "mangos", "zebras"}, r.EntityTypeIDs())
}

func TestRegistry_Packages(t *testing.T) {
	r := NewRegistry()
	root := &Package{ID: "bio", Label: "Biology"}
	r.RegisterPackage(root)
	r.RegisterPackage(&Package{ID: "bio_genomics", Label: "Genomics", Parent: root})

	p, ok := r.Package("bio_genomics")
	require.True(t, ok)
	assert.Equal(t, "bio_genomics", p.FullyQualifiedID())
	assert.Equal(t, root, p.Parent)
}

func TestRegistry_ReferrersTo(t *testing.T) {
	r := NewRegistry()
	persons := validPersonType()
	require.NoError(t, r.Register(persons))

	orders := NewEntityType("orders")
	orderID := NewAttribute("id", TypeString)
	orderID.Nillable = false
	orderID.Unique = true
	buyer := NewAttribute("buyer", TypeXref)
	buyer.RefEntity = persons
	seller := NewAttribute("seller", TypeXref)
	seller.RefEntity = persons
	orders.AddAttribute(orderID).AddAttribute(buyer).AddAttribute(seller)
	orders.IDAttributeName = "id"
	require.NoError(t, r.Register(orders))

	referrers := r.ReferrersTo("persons")
	require.Len(t, referrers, 2)
	assert.Equal(t, "buyer", referrers[0].Attribute.Name)
	assert.Equal(t, "seller", referrers[1].Attribute.Name)
	assert.Equal(t, "orders", referrers[0].EntityType.ID)

	assert.Empty(t, r.ReferrersTo("orders"))
}

func TestIsSystem(t *testing.T) {
	assert.True(t, IsSystem("sys_md_EntityType"))
	assert.True(t, IsSystem("sys_FileMeta"))
	assert.False(t, IsSystem("system_of_record"))
	assert.False(t, IsSystem("persons"))
}

func TestSystemEntityTypes(t *testing.T) {
	types := SystemEntityTypes()
	byID := make(map[string]*EntityType, len(types))
	for _, et := range types {
		byID[et.ID] = et
	}

	entityType := byID[EntityTypeMeta]
	require.NotNil(t, entityType)
	// self-hosting: the entity type registry refers to itself
	assert.Same(t, entityType, entityType.Attribute("extends").RefEntity)
	assert.Equal(t, byID[AttributeMeta], entityType.Attribute("attributes").RefEntity)

	attribute := byID[AttributeMeta]
	require.NotNil(t, attribute)
	assert.Same(t, attribute, attribute.Attribute("parent").RefEntity)

	for _, et := range types {
		assert.True(t, IsSystem(et.ID), et.ID)
		require.NotNil(t, et.IDAttribute(), et.ID)
		assert.False(t, et.IDAttribute().Nillable, et.ID)
	}
}

func TestParseAttributeType(t *testing.T) {
	for t0 := TypeBool; t0 <= TypeImage; t0++ {
		parsed, err := ParseAttributeType(t0.String())
		require.NoError(t, err)
		assert.Equal(t, t0, parsed)
	}
	_, err := ParseAttributeType("BLOB")
	require.Error(t, err)
}

func TestAtomicAttributesFlattenCompounds(t *testing.T) {
	et := NewEntityType("forms")
	id := NewAttribute("id", TypeString)
	id.Nillable = false
	id.Unique = true
	address := NewAttribute("address", TypeCompound)
	address.Children = []*Attribute{
		NewAttribute("street", TypeString),
		NewAttribute("city", TypeString),
	}
	et.AddAttribute(id).AddAttribute(address)
	et.IDAttributeName = "id"

	var names []string
	for _, a := range et.AtomicAttributes() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"id", "street", "city"}, names)
	assert.NotNil(t, et.Attribute("city"))
}

func TestAttributesIncludeParent(t *testing.T) {
	parent := NewEntityType("base")
	parent.Abstract = true
	parent.AddAttribute(NewAttribute("createdAt", TypeDateTime))

	child := validPersonType()
	child.Extends = parent

	var names []string
	for _, a := range child.Attributes() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"createdAt", "id", "name"}, names)
}
