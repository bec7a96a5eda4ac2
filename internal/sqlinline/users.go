package sqlinline

const QUpsertGoogleUser = `--sql 8e2ea970-b207-43c2-bd9b-6a3fbfa75fc4
insert into users (id, google_sub, email, created_at)
values ($1::text, $2::text, $3::text, now())
on conflict (google_sub) do update set
    email = excluded.email
returning id, google_sub, email, stripe_customer_id, created_at;
`

const QSelectUserByID = `--sql 919cccf4-f78e-45c6-bd8f-b15dd384cd5c
select id, google_sub, email, stripe_customer_id, created_at
from users
where id = $1::text;
`
