// Package schematron compiles Schematron schemas into validators and runs
// them against XML documents, producing SVRL reports.
//
// A Factory turns a schema Source into a Validator by feeding the schema
// through a fixed Pipeline of compilation stages. Validators are immutable
// and safe for concurrent use; each Instance created from a Validator holds
// run state and validates one document at a time.
//
//	f := schematron.NewFactory()
//	v, err := f.NewValidator(ctx, schematron.FileSource("rules.sch"), "")
//	if err != nil {
//		return err
//	}
//	res, err := v.Validate(ctx, schematron.FileSource("doc.xml"), nil)
package schematron
